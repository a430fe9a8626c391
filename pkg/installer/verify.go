package installer

import (
	"context"

	"github.com/dyoshikawa/rulesync/pkg/lockfile"
)

type SkillState string

const (
	StateOK         SkillState = "ok"
	StateMissing    SkillState = "missing"
	StateMismatch   SkillState = "mismatch"
	StateUnverified SkillState = "unverified"
)

type SkillStatus struct {
	Source string
	Skill  string
	State  SkillState
	// Locked is the integrity recorded in the lockfile.
	Locked string
	// Actual is the integrity of the cached directory, empty when missing.
	Actual string
}

// Verify recomputes the integrity of every locked skill from the curated
// cache. Entries migrated from the legacy lockfile carry no integrity and
// are reported as unverified.
func (inst *Installer) Verify(ctx context.Context) ([]SkillStatus, error) {
	lf := lockfile.Read(ctx, inst.BaseDir)
	cache := inst.store()

	var out []SkillStatus
	for _, key := range lf.Keys() {
		for _, name := range sortedSkillNames(lf.Sources[key].Skills) {
			st := SkillStatus{Source: key, Skill: name, Locked: lf.Sources[key].Skills[name].Integrity}

			if !safeName(name) {
				st.State = StateMissing
				out = append(out, st)
				continue
			}
			exists, err := cache.Exists(name)
			if err != nil {
				return nil, err
			}
			if !exists {
				st.State = StateMissing
				out = append(out, st)
				continue
			}

			st.Actual, err = cache.HashDir(name)
			if err != nil {
				return nil, err
			}
			switch {
			case st.Locked == "":
				st.State = StateUnverified
			case st.Locked != st.Actual:
				st.State = StateMismatch
			default:
				st.State = StateOK
			}
			out = append(out, st)
		}
	}
	return out, nil
}
