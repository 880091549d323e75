package rules

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/bracket-engine/internal/models"
)

//go:embed default.yaml
var defaultRulebook []byte

const roundOfPrefix = "round-of-"

// Rulebook holds the fixed discipline rules: level chains, scoring
// windows, point values and penalty values.
type Rulebook struct {
	Forms    FormsRules    `yaml:"forms" json:"forms"`
	Sparring SparringRules `yaml:"sparring" json:"sparring"`
}

// FormsRules configures the judged solo discipline
type FormsRules struct {
	MinScores int          `yaml:"min_scores" json:"min_scores"`
	MinValue  float64      `yaml:"min_value" json:"min_value"`
	MaxValue  float64      `yaml:"max_value" json:"max_value"`
	Summands  int          `yaml:"summands" json:"summands"`
	Levels    []FormsLevel `yaml:"levels" json:"levels"`
}

// FormsLevel is one round of the forms chain. Advance is the number of
// performers carried into the next round; zero on the terminal round.
type FormsLevel struct {
	Name    string `yaml:"name" json:"name"`
	Advance int    `yaml:"advance,omitempty" json:"advance,omitempty"`
}

// SparringRules configures the head-to-head discipline
type SparringRules struct {
	Quorum       int           `yaml:"quorum" json:"quorum"`
	PointGap     float64       `yaml:"point_gap" json:"point_gap"`
	Points       PointValues   `yaml:"points" json:"points"`
	Penalties    PenaltyValues `yaml:"penalties" json:"penalties"`
	KeikokuAward float64       `yaml:"keikoku_award" json:"keikoku_award"`
	Levels       []string      `yaml:"levels" json:"levels"`
	Parallel     []string      `yaml:"parallel" json:"parallel"`
}

// PointValues are the awards of the three scoring tiers
type PointValues struct {
	Yuko    float64 `yaml:"yuko" json:"yuko"`
	WazaAri float64 `yaml:"waza_ari" json:"waza_ari"`
	Ippon   float64 `yaml:"ippon" json:"ippon"`
}

// PenaltyValues are the deductions of the four penalty tiers
type PenaltyValues struct {
	Chukoku     float64 `yaml:"chukoku" json:"chukoku"`
	Keikoku     float64 `yaml:"keikoku" json:"keikoku"`
	HansokuChui float64 `yaml:"hansoku_chui" json:"hansoku_chui"`
	Hansoku     float64 `yaml:"hansoku" json:"hansoku"`
}

// Default returns the embedded rulebook
func Default() *Rulebook {
	rb, err := Parse(defaultRulebook)
	if err != nil {
		panic(fmt.Sprintf("embedded rulebook is invalid: %v", err))
	}
	return rb
}

// Parse decodes a rulebook document
func Parse(data []byte) (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	rb.normalize()

	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return &rb, nil
}

// LoadFromFile reads a rulebook from path. An empty path yields the default.
func LoadFromFile(path string) (*Rulebook, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rulebook %s: %w", path, err)
	}

	slog.Info("rulebook loaded",
		"file", path,
		"forms_levels", len(rb.Forms.Levels),
		"sparring_levels", len(rb.Sparring.Levels),
	)
	return rb, nil
}

func (rb *Rulebook) normalize() {
	for i := range rb.Forms.Levels {
		rb.Forms.Levels[i].Name = NormalizeLevel(rb.Forms.Levels[i].Name)
	}
	for i := range rb.Sparring.Levels {
		rb.Sparring.Levels[i] = NormalizeLevel(rb.Sparring.Levels[i])
	}
	for i := range rb.Sparring.Parallel {
		rb.Sparring.Parallel[i] = NormalizeLevel(rb.Sparring.Parallel[i])
	}
}

// Validate checks internal consistency
func (rb *Rulebook) Validate() error {
	f := rb.Forms
	if f.MinScores < 1 {
		return fmt.Errorf("forms.min_scores must be positive")
	}
	if f.Summands < 1 {
		return fmt.Errorf("forms.summands must be positive")
	}
	if f.MinValue >= f.MaxValue {
		return fmt.Errorf("forms value range is empty: [%v, %v]", f.MinValue, f.MaxValue)
	}
	if len(f.Levels) == 0 {
		return fmt.Errorf("forms.levels is required")
	}
	for i, l := range f.Levels {
		if l.Name == "" {
			return fmt.Errorf("forms.levels[%d] has no name", i)
		}
		if i < len(f.Levels)-1 && l.Advance < 1 {
			return fmt.Errorf("forms level %s must advance at least one performer", l.Name)
		}
	}

	s := rb.Sparring
	if s.Quorum < 1 {
		return fmt.Errorf("sparring.quorum must be positive")
	}
	if s.PointGap <= 0 {
		return fmt.Errorf("sparring.point_gap must be positive")
	}
	if len(s.Levels) == 0 {
		return fmt.Errorf("sparring.levels is required")
	}
	seen := make(map[string]bool)
	for _, name := range append(append([]string{}, s.Levels...), s.Parallel...) {
		if name == "" {
			return fmt.Errorf("sparring level has no name")
		}
		if strings.HasPrefix(name, roundOfPrefix) {
			return fmt.Errorf("sparring level %s uses the reserved %q prefix", name, roundOfPrefix)
		}
		if seen[name] {
			return fmt.Errorf("duplicate sparring level %s", name)
		}
		seen[name] = true
	}

	return nil
}

// NormalizeLevel folds a level name to its canonical form,
// e.g. "Final 8" and "FINAL_8" both become "final-8".
func NormalizeLevel(name string) string {
	return slug.Make(strings.ReplaceAll(name, "_", " "))
}

// Chain returns the ordered level names of a discipline
func (rb *Rulebook) Chain(d models.Discipline) []string {
	if d == models.DisciplineForms {
		out := make([]string, len(rb.Forms.Levels))
		for i, l := range rb.Forms.Levels {
			out[i] = l.Name
		}
		return out
	}
	return append([]string(nil), rb.Sparring.Levels...)
}

// FirstFormsLevel returns the opening forms round
func (rb *Rulebook) FirstFormsLevel() string {
	return rb.Forms.Levels[0].Name
}

// SparringLevels returns the level names of a single-elimination bracket
// with the given number of rounds. Rounds beyond the named chain are
// called round-of-N after the number of entrants they hold.
func (rb *Rulebook) SparringLevels(rounds int) []string {
	chain := rb.Sparring.Levels
	if rounds <= 0 {
		return nil
	}
	if rounds <= len(chain) {
		return append([]string(nil), chain[len(chain)-rounds:]...)
	}

	out := make([]string, 0, rounds)
	for r := rounds; r > len(chain); r-- {
		out = append(out, roundOfPrefix+strconv.Itoa(1<<r))
	}
	return append(out, chain...)
}

// NextLevel returns the level that follows level in the discipline's
// chain. Terminal and parallel levels have no successor.
func (rb *Rulebook) NextLevel(d models.Discipline, level string) (string, bool) {
	level = NormalizeLevel(level)

	if d == models.DisciplineSparring {
		if n, ok := parseRoundOf(level); ok {
			half := n / 2
			if half == 1<<len(rb.Sparring.Levels) {
				return rb.Sparring.Levels[0], true
			}
			return roundOfPrefix + strconv.Itoa(half), true
		}
	}

	chain := rb.Chain(d)
	for i, name := range chain {
		if name == level && i+1 < len(chain) {
			return chain[i+1], true
		}
	}
	return "", false
}

// KnownLevel reports whether level belongs to the discipline
func (rb *Rulebook) KnownLevel(d models.Discipline, level string) bool {
	level = NormalizeLevel(level)
	for _, name := range rb.Chain(d) {
		if name == level {
			return true
		}
	}
	if d == models.DisciplineSparring {
		if rb.IsParallel(level) {
			return true
		}
		if n, ok := parseRoundOf(level); ok {
			return n > 1<<len(rb.Sparring.Levels)
		}
	}
	return false
}

// IsParallel reports whether level sits outside the progression chain
func (rb *Rulebook) IsParallel(level string) bool {
	level = NormalizeLevel(level)
	for _, name := range rb.Sparring.Parallel {
		if name == level {
			return true
		}
	}
	return false
}

// BronzeLevel returns the first parallel sparring level
func (rb *Rulebook) BronzeLevel() string {
	if len(rb.Sparring.Parallel) == 0 {
		return ""
	}
	return rb.Sparring.Parallel[0]
}

// IsTerminal reports whether level is the last of its chain
func (rb *Rulebook) IsTerminal(d models.Discipline, level string) bool {
	chain := rb.Chain(d)
	return len(chain) > 0 && chain[len(chain)-1] == NormalizeLevel(level)
}

// AdvanceCount returns how many performers leave a forms round
func (rb *Rulebook) AdvanceCount(level string) int {
	level = NormalizeLevel(level)
	for _, l := range rb.Forms.Levels {
		if l.Name == level {
			return l.Advance
		}
	}
	return 0
}

// SparringDepth orders sparring levels from the start of a bracket:
// chain levels count 0, 1, 2... and each round-of-N level before the
// chain counts one lower. Unknown and parallel levels report false.
func (rb *Rulebook) SparringDepth(level string) (int, bool) {
	level = NormalizeLevel(level)
	if n, ok := parseRoundOf(level); ok {
		depth := 0
		for m := n; m > 1<<len(rb.Sparring.Levels); m /= 2 {
			depth--
		}
		return depth, depth < 0
	}
	for i, name := range rb.Sparring.Levels {
		if name == level {
			return i, true
		}
	}
	return 0, false
}

func parseRoundOf(level string) (int, bool) {
	if !strings.HasPrefix(level, roundOfPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(level, roundOfPrefix))
	if err != nil || n < 2 || n&(n-1) != 0 {
		return 0, false
	}
	return n, true
}
