package scheduler

import (
	"strconv"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

// Expand turns definitions into instances in catalog order. A definition with
// RepeatCount 1 keeps its id; repeated ones become ID@0, ID@1, ...
func Expand(defs []domain.ProbeDefinition) []domain.ProbeInstance {
	n := 0
	for _, d := range defs {
		n += repeats(d)
	}

	out := make([]domain.ProbeInstance, 0, n)
	for _, d := range defs {
		r := repeats(d)
		for i := 0; i < r; i++ {
			id := d.ID
			if r > 1 {
				id = d.ID + "@" + strconv.Itoa(i)
			}
			out = append(out, domain.ProbeInstance{
				InstanceID:   id,
				DefinitionID: d.ID,
				Provider:     d.Provider,
				URL:          d.URL,
				Index:        i,
			})
		}
	}
	return out
}

func repeats(d domain.ProbeDefinition) int {
	if d.RepeatCount < 1 {
		return 1
	}
	return d.RepeatCount
}

// dedupe keeps the first instance for each id and returns the dropped ids.
// Catalogs built in code skip Validate, so B (repeat 2) next to a literal
// B@0 would otherwise yield two instances sharing one result slot.
func dedupe(insts []domain.ProbeInstance) ([]domain.ProbeInstance, []string) {
	seen := make(map[string]struct{}, len(insts))
	out := insts[:0:0]
	var dropped []string
	for _, in := range insts {
		if _, ok := seen[in.InstanceID]; ok {
			dropped = append(dropped, in.InstanceID)
			continue
		}
		seen[in.InstanceID] = struct{}{}
		out = append(out, in)
	}
	return out, dropped
}
