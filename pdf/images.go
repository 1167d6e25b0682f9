package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

// maxImageDim caps embedded image dimensions; larger sources are
// downscaled before encoding.
const maxImageDim = 2000

// DecodeImage decodes PNG or JPEG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pdf: decoding image: %w", err)
	}
	return img, nil
}

// PlaceImage embeds img as an XObject and draws it inside rect,
// centered and scaled to preserve the source aspect ratio.
func (p *Page) PlaceImage(img image.Image, rect Rectangle, opacity float64) (Ref, error) {
	img = capSize(img)
	bounds := img.Bounds()
	iw, ih := bounds.Dx(), bounds.Dy()
	if iw == 0 || ih == 0 {
		return Ref{}, fmt.Errorf("pdf: empty image")
	}

	imgRef, err := p.doc.addImageXObject(img)
	if err != nil {
		return Ref{}, err
	}

	res := p.ensureResources()
	xobjs, _ := res["XObject"].(Dict)
	if xobjs == nil {
		if shared, ok := p.doc.resolveDict(res["XObject"]); ok {
			xobjs = Dict{}
			for k, v := range shared {
				xobjs[k] = v
			}
		} else {
			xobjs = Dict{}
		}
		res["XObject"] = xobjs
	}
	p.doc.imgSeq++
	name := Name(fmt.Sprintf("PmImg%d", p.doc.imgSeq))
	xobjs[name] = imgRef
	p.doc.touch(p.ref)

	// Fit the image box inside rect without distortion.
	rw, rh := rect.URX-rect.LLX, rect.URY-rect.LLY
	scale := minF(rw/float64(iw), rh/float64(ih))
	dw, dh := float64(iw)*scale, float64(ih)*scale
	dx := rect.LLX + (rw-dw)/2
	dy := rect.LLY + (rh-dh)/2

	var content bytes.Buffer
	content.WriteString("q\n")
	if opacity > 0 && opacity < 1 {
		gsName := p.registerOpacityGS(res, opacity)
		fmt.Fprintf(&content, "/%s gs\n", gsName)
	}
	fmt.Fprintf(&content, "%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		fmtFloat(dw), fmtFloat(dh), fmtFloat(dx), fmtFloat(dy), name)
	p.appendContent(content.Bytes())
	return imgRef, nil
}

func (p *Page) registerOpacityGS(res Dict, opacity float64) Name {
	gs, _ := res["ExtGState"].(Dict)
	if gs == nil {
		gs = Dict{}
		res["ExtGState"] = gs
	}
	p.doc.imgSeq++
	name := Name(fmt.Sprintf("PmGS%d", p.doc.imgSeq))
	gs[name] = Dict{"Type": Name("ExtGState"), "ca": Real(opacity), "CA": Real(opacity)}
	return name
}

func capSize(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxImageDim && h <= maxImageDim {
		return img
	}
	scale := float64(maxImageDim) / float64(w)
	if h > w {
		scale = float64(maxImageDim) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// addImageXObject splits the image into flate-compressed RGB data plus
// a grayscale SMask when any pixel is not fully opaque.
func (d *Document) addImageXObject(img image.Image) (Ref, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				rgb = append(rgb, 0, 0, 0)
			} else {
				// Undo alpha premultiplication.
				rgb = append(rgb,
					byte((r*0xFFFF/a)>>8),
					byte((g*0xFFFF/a)>>8),
					byte((bl*0xFFFF/a)>>8))
			}
			alpha = append(alpha, byte(a>>8))
			if a>>8 != 0xFF {
				hasAlpha = true
			}
		}
	}

	dict := Dict{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            Integer(w),
		"Height":           Integer(h),
		"ColorSpace":       Name("DeviceRGB"),
		"BitsPerComponent": Integer(8),
		"Filter":           Name("FlateDecode"),
	}
	if hasAlpha {
		mdata := flateEncode(alpha)
		mask := &Stream{
			Dict: Dict{
				"Type":             Name("XObject"),
				"Subtype":          Name("Image"),
				"Width":            Integer(w),
				"Height":           Integer(h),
				"ColorSpace":       Name("DeviceGray"),
				"BitsPerComponent": Integer(8),
				"Filter":           Name("FlateDecode"),
				"Length":           Integer(len(mdata)),
			},
			Data: mdata,
		}
		dict["SMask"] = d.AddObject(mask)
	}
	cdata := flateEncode(rgb)
	dict["Length"] = Integer(len(cdata))
	return d.AddObject(&Stream{Dict: dict, Data: cdata}), nil
}

func flateEncode(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}
