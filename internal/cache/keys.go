package cache

import "fmt"

const keyPrefix = "gpstrack:"

// KeyAddress identifies a reverse-geocoded address. Coordinates are rounded
// to six decimals (about 10 cm) so jitter in the last digits shares an entry.
func KeyAddress(lat, lon float64) string {
	return fmt.Sprintf("address:%.6f:%.6f", lat, lon)
}
