package domain

import "github.com/spaolacci/murmur3"

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#469990",
	"#9a6324", "#800000", "#808000", "#000075",
}

// ColorFor returns a stable display color for a user, identical across
// reconnects and server restarts.
func ColorFor(id UserID) string {
	return palette[murmur3.Sum32([]byte(id))%uint32(len(palette))]
}
