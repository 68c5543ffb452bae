package visitors

import "hash/fnv"

var aliasMetals = []string{
	"Golden", "Silver", "Copper", "Bronze", "Brass", "Iron", "Steel", "Chrome", "Nickel", "Cobalt",
	"Platinum", "Titanium", "Pewter", "Gilded", "Polished", "Brushed", "Hammered", "Burnished", "Forged", "Molten",
	"Gleaming", "Radiant", "Shining", "Lustrous", "Glowing", "Sparkling", "Dazzling", "Mirrored", "Tempered", "Etched",
}

var aliasCreatures = []string{
	"Falcon", "Oryx", "Gazelle", "Camel", "Fennec", "Ibis", "Hoopoe", "Lynx", "Jerboa", "Scarab",
	"Eagle", "Heron", "Owl", "Hawk", "Crane", "Dove", "Kestrel", "Lark", "Sparrow", "Swan",
	"Lion", "Leopard", "Panther", "Wolf", "Fox", "Stallion", "Dolphin", "Whale", "Turtle", "Seahorse",
	"Phoenix", "Griffin", "Dragon", "Sphinx", "Pegasus", "Simurgh", "Roc", "Unicorn", "Hydra", "Kraken",
}

// VisitorAlias returns a readable stand-in for a visitor fingerprint. Logs use it in place
// of the fingerprint so repeat visits can be followed without exposing the hash.
func VisitorAlias(fingerprint string) string {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	index := int(h.Sum32())

	metal := aliasMetals[index%len(aliasMetals)]
	creature := aliasCreatures[(index/len(aliasMetals))%len(aliasCreatures)]

	return metal + " " + creature
}
