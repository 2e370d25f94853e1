// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import "strings"

// Namespaces partition the key space by request kind.
const (
	NamespaceListing = "listing"
	NamespaceDetail  = "detail"
)

const delimiter = ":"

// Identifiers are escaped so that the delimiter never appears inside a
// segment. That keeps keys collision-free for arbitrary city/action IDs.
var (
	segmentEscaper   = strings.NewReplacer("%", "%25", delimiter, "%3A")
	segmentUnescaper = strings.NewReplacer("%3A", delimiter, "%25", "%")
)

// Key composes "<namespace>:<id>[:<id>...]" with every id escaped.
func Key(namespace string, ids ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, id := range ids {
		b.WriteString(delimiter)
		b.WriteString(segmentEscaper.Replace(id))
	}
	return b.String()
}

// ListingKey is the key of the listing entry for a city.
func ListingKey(cityID string) string {
	return Key(NamespaceListing, cityID)
}

// DetailKey is the key of the detail entry for one action in a city.
func DetailKey(cityID, actionID string) string {
	return Key(NamespaceDetail, cityID, actionID)
}

// NamespacePrefix matches every key in a namespace.
func NamespacePrefix(namespace string) string {
	return namespace + delimiter
}

// DetailPrefix matches every detail key of a city.
func DetailPrefix(cityID string) string {
	return Key(NamespaceDetail, cityID) + delimiter
}

// splitKey returns the namespace and unescaped ids of key.
func splitKey(key string) (string, []string) {
	parts := strings.Split(key, delimiter)
	ids := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		ids = append(ids, segmentUnescaper.Replace(p))
	}
	return parts[0], ids
}
