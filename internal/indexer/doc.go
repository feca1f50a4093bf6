// Package indexer turns repository metadata trees into searchable vectors.
//
// A Service walks a repository with internal/repository, embeds one text
// per record (folder summary, file content or line content), and upserts
// one point per record into the repository's collection. Search embeds the
// query with the same function and decodes hits back into records; line
// hits carry their neighbouring lines from the stored payload, so the
// filesystem is never read at query time.
package indexer
