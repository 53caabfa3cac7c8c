package models

import "github.com/daniacca/cmsim/internal/cms"

const Decay = "decay"

func init() {
	register(Template{
		Name:        Decay,
		Description: "A -> B at rate k*A",
		Defaults:    map[string]int64{"A": 100},
		build: func() (*cms.Model, error) {
			b := newBuilder(Decay)
			b.species("A", "B")
			b.param("k", 0.5)
			b.reaction("decay", list("A"), list("B"), "(* k A)")
			return b.done()
		},
	})
}
