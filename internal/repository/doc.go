// Package repository walks a repository on disk and builds its metadata tree:
// one record per folder, per text file and per line of every text file.
//
// The walk is an explicit call with an explicit root; nothing runs at import
// or startup. Only an invalid root is fatal. Every other failure (an
// unreadable entry, a failed binary check, undecodable bytes) is recovered,
// logged with its category and recorded in Tree.Issues and Tree.Stats.
//
// Records form a closed set: FolderRecord, FileRecord and LineRecord all
// implement Record, and consumers switch on the concrete type:
//
//	for _, rec := range tree.Records() {
//	    switch r := rec.(type) {
//	    case repository.FolderRecord:
//	    case repository.FileRecord:
//	    case repository.LineRecord:
//	    }
//	}
package repository
