package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Busy", "Daring",
	"Bold", "Lively", "Agile", "Nimble", "Speedy", "Bright", "Radiant", "Cheerful", "Jolly", "Merry",
	"Creative", "Inventive", "Elegant", "Graceful", "Friendly", "Cordial", "Magical", "Charming", "Calm", "Serene",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Bear", "Penguin", "Kangaroo", "Parrot", "Giraffe", "Raccoon", "Meerkat", "Llama",
	"Hedgehog", "Tiger", "Wolf", "Falcon", "Dolphin", "Whale", "Seahorse", "Octopus", "Turtle", "Heron",
	"Dragon", "Unicorn", "Phoenix", "Griffin", "Yeti", "Kraken", "Finch", "Sparrow", "Crane", "Swan",
}

// Alias returns a stable, human-readable display name for a visitor id, used
// in listings instead of the raw id.
func Alias(visitorID string) string {
	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	animal := aliasAnimals[(index/len(aliasAdjectives))%len(aliasAnimals)]
	return adj + " " + animal
}
