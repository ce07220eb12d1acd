// Command annot-import loads an annotation JSON file into the sqlite
// annotation store and prints per-class statistics.
package main

import (
	"flag"
	"log"
	"sort"

	"github.com/banshee-data/clipset/internal/annotation"
	"github.com/banshee-data/clipset/internal/annotdb"
)

func main() {
	labels := flag.String("labels", "", "annotation JSON file to import")
	dbPath := flag.String("db", "annotations.db", "sqlite database path")
	flag.Parse()

	if *labels == "" {
		log.Fatal("missing -labels")
	}

	videos, err := annotation.LoadVideos(*labels)
	if err != nil {
		log.Fatal(err)
	}

	store, err := annotdb.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.BulkImport(videos); err != nil {
		log.Fatal(err)
	}

	nVideos, err := store.VideoCount()
	if err != nil {
		log.Fatal(err)
	}
	nEvents, err := store.EventCount()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("imported %d videos, %d events into %s", nVideos, nEvents, *dbPath)

	counts, err := store.ClassCounts()
	if err != nil {
		log.Fatal(err)
	}
	labelsSorted := make([]string, 0, len(counts))
	for l := range counts {
		labelsSorted = append(labelsSorted, l)
	}
	sort.Strings(labelsSorted)
	for _, l := range labelsSorted {
		log.Printf("  %-20s %d", l, counts[l])
	}
}
