package pdf

import (
	"bytes"
	"fmt"
	"sort"
)

// MarshalIncremental appends all dirty objects, a classic xref update
// section and a trailer to the original bytes. The original content is
// never rewritten, so earlier revisions stay recoverable.
func (d *Document) MarshalIncremental() ([]byte, error) {
	if len(d.dirty) == 0 {
		out := make([]byte, len(d.data))
		copy(out, d.data)
		return out, nil
	}

	nums := make([]int, 0, len(d.dirty))
	for n := range d.dirty {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var out bytes.Buffer
	out.Write(d.data)
	if out.Len() > 0 && out.Bytes()[out.Len()-1] != '\n' {
		out.WriteByte('\n')
	}

	offsets := make(map[int]int64, len(nums))
	for _, num := range nums {
		obj, ok := d.cache[num]
		if !ok {
			return nil, fmt.Errorf("pdf: dirty object %d has no value", num)
		}
		gen := 0
		if e, ok := d.xref[num]; ok {
			gen = e.gen
		}
		offsets[num] = int64(out.Len())
		fmt.Fprintf(&out, "%d %d obj\n", num, gen)
		serializeObject(&out, obj)
		out.WriteString("\nendobj\n")
	}

	xrefOffset := int64(out.Len())
	out.WriteString("xref\n")
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		fmt.Fprintf(&out, "%d %d\n", nums[i], j-i+1)
		for k := i; k <= j; k++ {
			gen := 0
			if e, ok := d.xref[nums[k]]; ok {
				gen = e.gen
			}
			fmt.Fprintf(&out, "%010d %05d n \n", offsets[nums[k]], gen)
		}
		i = j + 1
	}

	trailer := Dict{
		"Size": Integer(d.maxObjNum + 1),
	}
	if d.startXRef > 0 {
		trailer["Prev"] = Integer(d.startXRef)
	}
	for _, key := range []Name{"Root", "Info", "ID"} {
		if v, ok := d.trailer[key]; ok {
			trailer[key] = v
		}
	}
	out.WriteString("trailer\n")
	serializeDict(&out, trailer)
	fmt.Fprintf(&out, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return out.Bytes(), nil
}
