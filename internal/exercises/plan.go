package exercises

import "fmt"

const (
	defaultSets = 3
	defaultReps = 10
)

// Plan is the ordered list of prescriptions for a session. Position in the
// slice is the order index. Exercise ids are unique within a plan.
type Plan []Prescription

func intPtr(v int) *int { return &v }

// Contains reports whether the exercise is already selected.
func (p Plan) Contains(exerciseID string) bool {
	return p.indexOf(exerciseID) >= 0
}

func (p Plan) indexOf(exerciseID string) int {
	for i, item := range p {
		if item.Exercise.ID == exerciseID {
			return i
		}
	}
	return -1
}

// Add appends ex with the default dosage. Adding an exercise that is already
// in the plan does nothing and returns false.
func (p *Plan) Add(ex Exercise) bool {
	if p.Contains(ex.ID) {
		return false
	}
	*p = append(*p, Prescription{
		Exercise:  ex,
		Sets:      intPtr(defaultSets),
		Reps:      intPtr(defaultReps),
		Frequency: FrequencyDaily,
	})
	return true
}

// Remove drops the exercise if present.
func (p *Plan) Remove(exerciseID string) bool {
	i := p.indexOf(exerciseID)
	if i < 0 {
		return false
	}
	items := *p
	*p = append(items[:i:i], items[i+1:]...)
	return true
}

// Reorder moves the item at from to position to. Out-of-range indices are ignored.
func (p *Plan) Reorder(from, to int) bool {
	items := *p
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) || from == to {
		return false
	}
	moved := items[from]
	out := make(Plan, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	out = append(out[:to], append(Plan{moved}, out[to:]...)...)
	*p = out
	return true
}

// UpdateParameters merges a dosage change into the item at index.
func (p Plan) UpdateParameters(index int, update ParameterUpdate) error {
	if index < 0 || index >= len(p) {
		return ErrIndexOutOfRange
	}
	if err := update.validate(); err != nil {
		return err
	}
	item := &p[index]
	for _, field := range update.Clear {
		switch field {
		case FieldSets:
			item.Sets = nil
		case FieldReps:
			item.Reps = nil
		case FieldDuration:
			item.DurationSeconds = nil
		}
	}
	if update.Sets != nil {
		item.Sets = intPtr(*update.Sets)
	}
	if update.Reps != nil {
		item.Reps = intPtr(*update.Reps)
	}
	if update.DurationSeconds != nil {
		item.DurationSeconds = intPtr(*update.DurationSeconds)
	}
	if update.Frequency != nil {
		item.Frequency = *update.Frequency
	}
	if update.Notes != nil {
		item.Notes = *update.Notes
	}
	return nil
}

// Validate checks a whole plan supplied by a client: ids are present and
// unique, dosage values are positive and the frequency is known.
func (p Plan) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for i, item := range p {
		id := item.Exercise.ID
		if id == "" {
			return fmt.Errorf("%w: item %d has no exercise id", ErrExerciseNotFound, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateExercise, id)
		}
		seen[id] = struct{}{}
		for _, v := range []*int{item.Sets, item.Reps, item.DurationSeconds} {
			if v != nil && *v <= 0 {
				return fmt.Errorf("%w: %s", ErrInvalidDosage, id)
			}
		}
		if !item.Frequency.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidFrequency, item.Frequency)
		}
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	for i, item := range p {
		cp := item
		if item.Sets != nil {
			cp.Sets = intPtr(*item.Sets)
		}
		if item.Reps != nil {
			cp.Reps = intPtr(*item.Reps)
		}
		if item.DurationSeconds != nil {
			cp.DurationSeconds = intPtr(*item.DurationSeconds)
		}
		out[i] = cp
	}
	return out
}
