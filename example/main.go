package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/javi11/archivenest"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <archive>", os.Args[0])
	}

	a, err := archivenest.Open(os.Args[1])
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	defer func() { _ = a.Close() }()

	// full recursive summary JSON
	b, _ := json.MarshalIndent(a.Summary(true), "", "  ")
	fmt.Println(string(b))

	// flattened listing with provenance
	flat, err := a.FlatEntries(true, true, "")
	if err != nil {
		log.Fatalf("flatten: %v", err)
	}
	for _, fe := range flat {
		if fe.Err != "" {
			fmt.Printf("%-40s  [%s]  ERROR: %s\n", fe.Name, fe.Source, fe.Err)
			continue
		}
		fmt.Printf("%-40s  [%s]\n", fe.Name, fe.Source)
	}
}
