package core

// GroupSizeOption controls range chunking of the scale-dependent stage.
// It is never passed to a binary.
const GroupSizeOption = "groupSize"

// Option is a single command-line option of a stage.
type Option struct {
	Name  string
	Value string
}

// Options is the ordered option list of one stage.
// Methods never modify the receiver.
type Options []Option

// Get returns the value of name.
func (o Options) Get(name string) (string, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return "", false
}

// With returns a copy of o with name set to value. An existing option keeps
// its position; a new one is appended.
func (o Options) With(name, value string) Options {
	out := make(Options, len(o), len(o)+1)
	copy(out, o)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Option{Name: name, Value: value})
}

// Args serializes the options as "--name value" pairs, skipping groupSize.
func (o Options) Args() []string {
	args := make([]string, 0, 2*len(o))
	for _, opt := range o {
		if opt.Name == GroupSizeOption {
			continue
		}
		args = append(args, "--"+opt.Name, opt.Value)
	}
	return args
}

// ParameterSet holds the options of every stage for one resolved
// (quality, dataset size) pair.
type ParameterSet struct {
	Quality     Quality
	DatasetSize DatasetSize
	stages      map[StageID]Options
}

// NewParameterSet builds a parameter set from per-stage options.
// The input map is copied.
func NewParameterSet(q Quality, size DatasetSize, stages map[StageID]Options) ParameterSet {
	own := make(map[StageID]Options, len(stages))
	for id, opts := range stages {
		own[id] = append(Options(nil), opts...)
	}
	return ParameterSet{Quality: q, DatasetSize: size, stages: own}
}

// Stage returns a copy of the options for id.
func (p ParameterSet) Stage(id StageID) Options {
	return append(Options(nil), p.stages[id]...)
}

// Stages returns a copy of every stage's options.
func (p ParameterSet) Stages() map[StageID]Options {
	out := make(map[StageID]Options, len(p.stages))
	for id := range p.stages {
		out[id] = p.Stage(id)
	}
	return out
}

// WithOption returns a new set with one option of one stage replaced.
func (p ParameterSet) WithOption(id StageID, name, value string) ParameterSet {
	next := NewParameterSet(p.Quality, p.DatasetSize, p.stages)
	next.stages[id] = next.stages[id].With(name, value)
	return next
}
