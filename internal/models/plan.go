package models

import (
	"time"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
)

// MigrationPlan holds everything one breaking-change migration run needs.
// It lives only in memory for the duration of the run and is left populated
// after a failure so that an operator can see which indices were involved.
type MigrationPlan struct {
	ID                 string
	StartedAt          time.Time
	AliasName          string
	CurrentIndex       string
	NewIndex           string
	Catchup1Index      string
	Catchup2Index      string
	ThrowawayTestIndex string
	MigrationLogIndex  string
	CurrentSettings    jsonv.Value
	CurrentMappings    jsonv.Value
	NewSettings        jsonv.Value
	NewMappings        jsonv.Value
	TransformScript    string
}

// Indices lists every index name the plan may create or touch.
func (p *MigrationPlan) Indices() []string {
	var out []string
	for _, name := range []string{p.CurrentIndex, p.NewIndex, p.Catchup1Index, p.Catchup2Index, p.ThrowawayTestIndex, p.MigrationLogIndex} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
