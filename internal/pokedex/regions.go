// Package pokedex maps National Pokedex numbers to game regions and
// generations via static number ranges.
package pokedex

// Entry is the region and generation a Pokedex number belongs to.
type Entry struct {
	Generation int
	Region     string
}

// regionRanges lists the highest Pokedex number of each generation,
// lowest first. Lookup scans in order and takes the first range that
// contains the number.
var regionRanges = []struct {
	maxNumber  int
	generation int
	region     string
}{
	{151, 1, "Kanto"},
	{251, 2, "Johto"},
	{386, 3, "Hoenn"},
	{493, 4, "Sinnoh"},
	{649, 5, "Unova"},
	{721, 6, "Kalos"},
	{809, 7, "Alola"},
	{905, 8, "Galar"},
	{1025, 9, "Paldea"},
}

// Lookup returns the region and generation for a Pokedex number. The
// boolean is false when the number is beyond the highest known range.
func Lookup(number int) (Entry, bool) {
	for _, r := range regionRanges {
		if number <= r.maxNumber {
			return Entry{Generation: r.generation, Region: r.region}, true
		}
	}
	return Entry{}, false
}
