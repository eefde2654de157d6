package main

// General API documentation for swaggo. Run `swag init -g cmd/llamad/docs.go` to generate docs.
//
// @title           llamad API
// @version         1.0
// @description     HTTP API for local llama.cpp model management, streaming inference, embeddings and state persistence.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
