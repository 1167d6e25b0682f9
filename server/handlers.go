package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/pagemark/pagemark/annot"
	"github.com/pagemark/pagemark/ledger"
	"github.com/pagemark/pagemark/pdf"
	"github.com/pagemark/pagemark/render"
	"github.com/pagemark/pagemark/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		errorResponse(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %s", humanize.Bytes(uint64(s.maxUpload))))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		errorResponse(w, http.StatusBadRequest, "only .pdf files are accepted")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	rec, pages, err := s.svc.Upload(r.Context(), name, data)
	if errors.Is(err, pdf.ErrEncrypted) {
		errorResponse(w, http.StatusUnprocessableEntity, "encrypted documents are not supported")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusBadRequest, fmt.Sprintf("not a usable PDF: %v", err))
		return
	}
	s.log.Info("upload accepted",
		"doc", rec.ID, "name", name, "size", humanize.Bytes(uint64(len(data))), "pages", pages)
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"id":    rec.ID,
		"name":  rec.Name,
		"pages": pages,
	})
}

// currentDoc loads and parses the newest revision of the routed doc.
func (s *Server) currentDoc(w http.ResponseWriter, r *http.Request) (*pdf.Document, string, bool) {
	id := mux.Vars(r)["doc"]
	data, _, err := s.svc.Current(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "unknown document")
		return nil, "", false
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "loading document failed")
		return nil, "", false
	}
	doc, err := pdf.Parse(data)
	if err != nil {
		s.log.Error("stored revision failed to parse", "doc", id, "error", err)
		errorResponse(w, http.StatusInternalServerError, "stored document is unreadable")
		return nil, "", false
	}
	return doc, id, true
}

func (s *Server) handleThumbs(w http.ResponseWriter, r *http.Request) {
	doc, id, ok := s.currentDoc(w, r)
	if !ok {
		return
	}
	thumbs := make([]string, doc.PageCount())
	for i := range thumbs {
		thumbs[i] = fmt.Sprintf("/thumb/%s/%d", id, i)
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"id":     id,
		"pages":  doc.PageCount(),
		"thumbs": thumbs,
	})
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.currentDoc(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(mux.Vars(r)["page"])
	data, err := s.raster.RenderPage(doc, page, render.MinDPI)
	if err != nil {
		errorResponse(w, http.StatusNotFound, "page out of range")
		return
	}
	thumb, err := render.Thumbnail(data)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "thumbnail failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(thumb)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.currentDoc(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(mux.Vars(r)["page"])
	zoom, _ := strconv.ParseFloat(r.URL.Query().Get("zoom"), 64)
	data, err := s.raster.RenderPage(doc, page, render.DPIForZoom(zoom))
	if err != nil {
		errorResponse(w, http.StatusNotFound, "page out of range")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["doc"]
	var req struct {
		Actions []*annot.Action `json:"actions"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, fmt.Sprintf("bad action payload: %v", err))
		return
	}

	lock := s.docLock(id)
	lock.Lock()
	defer lock.Unlock()

	version, results, err := s.svc.ApplyBatch(r.Context(), id, req.Actions)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "unknown document")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"version": version,
		"results": results,
	})
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["doc"]
	lock := s.docLock(id)
	lock.Lock()
	defer lock.Unlock()

	version, err := s.svc.Revert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "unknown document")
		return
	}
	if errors.Is(err, ledger.ErrNoPreviousVersion) {
		errorResponse(w, http.StatusConflict, "already at the original version")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "revert failed")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"version": version,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["doc"]
	data, rec, err := s.svc.Current(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "unknown document")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "loading document failed")
		return
	}
	name := rec.Name
	if name == "" {
		name = id + ".pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
