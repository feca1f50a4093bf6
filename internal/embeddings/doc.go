// Package embeddings turns record text into vectors.
//
// Three backends are available behind the Provider interface: FastEmbed
// (local ONNX models, requires cgo), a Text Embeddings Inference server over
// HTTP, and the OpenAI embeddings API. NewProvider picks one from
// configuration and resolves the vector dimension for the chosen model.
package embeddings
