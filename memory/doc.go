// Package memory provides the affective episodic memory of a companion agent.
//
// Every interaction the agent has is written as a Record: a timestamped line
// of text, its embedding, a snapshot of the agent's emotional state and a
// salience weight. Records are recalled by a blend of semantic similarity and
// emotional alignment, with a penalty for memories that merely repeat the
// question being asked.
//
// Architecture:
//   - Store: vector storage backend (chromem-go embedded, pgvector server)
//   - Embedder: text-to-vector conversion (ONNX local model, OpenAI API, mock)
//   - Summarizer: cluster-to-summary rewriting used by consolidation
//   - Manager: write path, recall ranking, scans and deletes
//
// Consolidation lives in package dream and the fact ledger in package facts.
//
// Availability:
//   - A Manager whose store or embedder failed to come up reports
//     Available() == false. Reads then return nothing and writes return
//     ErrUnavailable; nothing panics and nothing is retried.
package memory
