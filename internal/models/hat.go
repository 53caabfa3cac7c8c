package models

import "github.com/daniacca/cmsim/internal/cms"

const (
	HAT         = "hat"
	HATExpanded = "hat-expanded"
)

// HATPopulations are the default initial populations of both HAT variants.
// Every other species starts empty.
var HATPopulations = map[string]int64{
	"human-susceptible":     10_000,
	"tsetse-susceptible":    99_900,
	"tsetse-infectious":     100,
	"reservoir-susceptible": 1_000,
}

func init() {
	register(Template{
		Name:        HAT,
		Description: "HAT transmission between humans, tsetse flies and an animal reservoir; single infectious-feed rate",
		Defaults:    HATPopulations,
		build:       func() (*cms.Model, error) { return buildHAT(false) },
	})
	register(Template{
		Name:        HATExpanded,
		Description: "HAT transmission with the tsetse feeding choice split into eight reactions",
		Defaults:    HATPopulations,
		build:       func() (*cms.Model, error) { return buildHAT(true) },
	})
}

func buildHAT(expanded bool) (*cms.Model, error) {
	name := HAT
	if expanded {
		name = HATExpanded
	}
	b := newBuilder(name)

	b.species(
		"human-susceptible",
		"human-exposed",
		"human-infectious-one",
		"human-infectious-two",
		"human-recovered",
		"human-infection-cumulative",
		"tsetse-susceptible",
		"tsetse-exposed",
		"tsetse-infectious",
		"tsetse-non-susceptible",
		"reservoir-susceptible",
		"reservoir-exposed",
		"reservoir-infectious",
		"reservoir-recovered",
	)

	// Rates follow medRxiv 2020.06.23.20138065 where it gives one.
	b.param("sigma-h", 0.0833) // human incubation, E -> I1
	b.param("phi-h", 0.0019)   // human progression, I1 -> I2
	b.param("omega-h", 0.006)  // human recovery
	b.param("beta-v", 0.065)   // tsetse infection from an infectious host
	b.param("p-human-feed", 0.05)
	b.param("p-reservoir-feed", 0.23)
	b.param("sigma-v", 0.034) // tsetse incubation, E -> I
	b.param("mu-v", 0.03)
	b.param("p-feed", 1.0/3) // feeding within the first 24 hours
	b.param("beta-h", 1.0)
	b.param("beta-r", 1.0)
	b.param("phi-r", 0.0019)
	b.param("omega-r", 0.006)
	b.param("mu-h", 1.0/80)
	b.param("mu-r", 1.0/5)

	b.function("human-population", "(+ human-susceptible human-exposed human-infectious-one human-infectious-two human-recovered)")
	b.function("reservoir-population", "(+ reservoir-susceptible reservoir-exposed reservoir-infectious reservoir-recovered)")

	// human S -> E -> I1 -> I2 -> R
	b.reaction("human-infection", list("human-susceptible"), list("human-exposed", "human-infection-cumulative"),
		"(/ (* beta-h human-susceptible tsetse-infectious) human-population)")
	b.reaction("human-exposed-infectious", list("human-exposed"), list("human-infectious-one"), "(* sigma-h human-exposed)")
	b.reaction("human-infectious-progression", list("human-infectious-one"), list("human-infectious-two"), "(* phi-h human-infectious-one)")
	b.reaction("human-recovery", list("human-infectious-two"), list("human-recovered"), "(* omega-h human-infectious-two)")

	// tsetse S -> E -> I and S -> N
	if expanded {
		feeding(b)
	} else {
		b.function("infectious-feed",
			"(* p-feed (+ (* p-human-feed (/ human-infectious-one human-population)) (* p-reservoir-feed (/ reservoir-infectious reservoir-population))) beta-v)")
		b.reaction("feed-and-infected", list("tsetse-susceptible"), list("tsetse-exposed"), "infectious-feed")
		b.reaction("become-non-susceptible", list("tsetse-susceptible"), list("tsetse-non-susceptible"), "(- 1 infectious-feed)")
	}
	b.reaction("tsetse-progress-to-infectious", list("tsetse-exposed"), list("tsetse-infectious"), "(* sigma-v tsetse-exposed)")

	// reservoir S -> E -> I -> R
	b.reaction("reservoir-infection", list("reservoir-susceptible"), list("reservoir-exposed"),
		"(/ (* beta-r reservoir-susceptible tsetse-infectious) reservoir-population)")
	b.reaction("reservoir-exposed-infectious", list("reservoir-exposed"), list("reservoir-infectious"), "(* phi-r reservoir-exposed)")
	b.reaction("reservoir-recovery", list("reservoir-infectious"), list("reservoir-recovered"), "(* omega-r reservoir-infectious)")

	// vital dynamics: deaths are recycled into susceptible births
	for _, sp := range []string{"human-exposed", "human-infectious-one", "human-infectious-two", "human-recovered"} {
		b.reaction(sp+"-death-birth", list(sp), list("human-susceptible"), "(* mu-h "+sp+")")
	}
	for _, sp := range []string{"exposed", "infectious", "non-susceptible"} {
		b.reaction("vector-"+sp+"-death-birth", list("tsetse-"+sp), list("tsetse-susceptible"), "(* mu-h tsetse-"+sp+")")
	}
	for _, sp := range []string{"reservoir-exposed", "reservoir-infectious", "reservoir-recovered"} {
		b.reaction(sp+"-death-birth", list(sp), list("reservoir-susceptible"), "(* mu-r "+sp+")")
	}

	return b.done()
}

// feeding adds the feeding-choice reactions: a susceptible fly feeds on an
// infectious or uninfectious human, reservoir or other host, or does not
// feed at all.
func feeding(b *builder) {
	s, e, n := list("tsetse-susceptible"), list("tsetse-exposed"), list("tsetse-non-susceptible")
	humanI := "(/ human-infectious-one human-population)"
	reservoirI := "(/ reservoir-infectious reservoir-population)"

	b.reaction("feed-infectious-human-infected", s, e, "(* p-feed p-human-feed "+humanI+" beta-v)")
	b.reaction("feed-infectious-human-uninfected", s, n, "(* p-feed p-human-feed "+humanI+" (- 1 beta-v))")
	b.reaction("feed-uninfectious-human", s, n, "(* p-feed p-human-feed (- 1 "+humanI+"))")
	b.reaction("feed-infectious-reservoir-infected", s, e, "(* p-feed p-reservoir-feed "+reservoirI+" beta-v)")
	b.reaction("feed-infectious-reservoir-uninfected", s, n, "(* p-feed p-reservoir-feed "+reservoirI+" (- 1 beta-v))")
	b.reaction("feed-uninfectious-reservoir", s, n, "(* p-feed p-reservoir-feed (- 1 "+reservoirI+"))")
	b.reaction("feed-non-infectious-host", s, n, "(* p-feed (- 1 (+ p-human-feed p-reservoir-feed)))")
	b.reaction("dont-feed", s, n, "(- 1 p-feed)")
}
