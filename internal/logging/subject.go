package logging

import "strings"

// FormatSubject builds the phase/batch subject string used in console output.
func FormatSubject(phase, batch string) string {
	phase = strings.TrimSpace(phase)
	batch = strings.TrimSpace(batch)
	parts := make([]string, 0, 2)
	if phase != "" {
		if len(phase) > 1 {
			phase = strings.ToUpper(phase[:1]) + strings.ToLower(phase[1:])
		} else {
			phase = strings.ToUpper(phase)
		}
		parts = append(parts, phase)
	}
	if batch != "" {
		parts = append(parts, "Batch #"+batch)
	}
	return strings.Join(parts, " · ")
}
