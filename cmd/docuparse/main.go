/**
 * docuparse - Main Entry Point
 *
 * Extracts text from the PDFs and images in a directory and stores one record
 * per file, keyed by its absolute path.
 *
 * Pipeline:
 * - PDFs: native page text plus OCR of every embedded raster image
 * - Images: Tesseract orientation detection, normalization and recognition
 * - Stores: MongoDB, PostgreSQL, Redis or memory, written idempotently
 */

package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
