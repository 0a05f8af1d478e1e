package runner

import (
	"fmt"
	"sort"

	"github.com/notargets/SubBufCheck/buffer"
)

// Scenario is one sub-buffer launch and the verdict it should produce
type Scenario struct {
	Name           string
	Title          string // used in the report banners
	ExtraWorkItems int64  // work items launched past the end of the sub-buffer
	ExpectOverflow bool
	SubFlags       buffer.Flags // access the kernel gets to the sub-buffer
}

var (
	// GoodSubBuffer writes exactly the sub-buffer and must not be reported
	GoodSubBuffer = Scenario{
		Name:  "good-sub-buffer",
		Title: "Good sub buffer",
	}

	// BadSubBuffer writes one entry past the sub-buffer and must be reported
	BadSubBuffer = Scenario{
		Name:           "bad-sub-buffer",
		Title:          "Bad sub buffer",
		ExtraWorkItems: 1,
		ExpectOverflow: true,
	}

	// ReadOnlySubBuffer hands the kernel a const sub-buffer, so nothing may change
	ReadOnlySubBuffer = Scenario{
		Name:     "read-only-sub-buffer",
		Title:    "Read only sub buffer",
		SubFlags: buffer.ReadOnly,
	}
)

var scenarios = map[string]Scenario{
	GoodSubBuffer.Name:     GoodSubBuffer,
	BadSubBuffer.Name:      BadSubBuffer,
	ReadOnlySubBuffer.Name: ReadOnlySubBuffer,
}

// LookupScenario finds a scenario by name
func LookupScenario(name string) (Scenario, error) {
	sc, ok := scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (have %v)", name, ScenarioNames())
	}
	return sc, nil
}

// ScenarioNames lists the registered scenarios in sorted order
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
