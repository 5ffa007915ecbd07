package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Fingerprint hashes the data-bearing content of a snapshot. Fields that
// advance with the wall clock alone (generation time, idle durations) are
// left out so an idle pipeline hashes the same on every cycle.
func (s UsageSnapshot) Fingerprint() string {
	s.GeneratedAt = time.Time{}
	if s.CurrentSession != nil {
		cur := *s.CurrentSession
		cur.IdleFor = 0
		s.CurrentSession = &cur
	}
	if len(s.TopSessions) > 0 {
		top := make([]SessionHealth, len(s.TopSessions))
		copy(top, s.TopSessions)
		for i := range top {
			top[i].IdleFor = 0
		}
		s.TopSessions = top
	}

	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
