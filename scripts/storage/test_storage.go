// Mirrors a database snapshot into an archive and prints the row counts.
//
//	go run ./scripts/storage/test_storage.go database.json [archive.db]
package main

import (
	"context"
	"log"
	"os"

	"github.com/oooz/oooz-bot/src/data/archive"
	"github.com/oooz/oooz-bot/src/data/store"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <snapshot> [sqlite file]", os.Args[0])
	}
	target := "file::memory:?cache=shared"
	if len(os.Args) > 2 {
		target = os.Args[2]
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read snapshot: %v", err)
	}
	snapshot, err := store.Decode(raw)
	if err != nil {
		log.Fatalf("decode snapshot: %v", err)
	}

	arch, err := archive.Open("sqlite", target, nil)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer arch.Close()

	if err := arch.Sync(context.Background(), snapshot); err != nil {
		log.Fatalf("sync: %v", err)
	}

	for name, model := range map[string]any{
		"proposals":      &archive.Proposal{},
		"proposal_votes": &archive.ProposalVote{},
		"warnings":       &archive.Warning{},
	} {
		var n int64
		if err := arch.DB().Model(model).Count(&n).Error; err != nil {
			log.Fatalf("count %s: %v", name, err)
		}
		log.Printf("%s: %d rows", name, n)
	}
}
