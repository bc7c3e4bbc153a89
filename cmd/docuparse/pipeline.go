package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minoad/docuparse/internal/config"
	"github.com/minoad/docuparse/internal/dispatch"
	"github.com/minoad/docuparse/internal/logging"
	"github.com/minoad/docuparse/internal/ocr"
	"github.com/minoad/docuparse/internal/processor"
	"github.com/minoad/docuparse/internal/storage"
)

// pipeline holds everything a run needs and the resources to release after it
type pipeline struct {
	storage    *storage.StorageManager
	dispatcher *dispatch.Dispatcher
	closers    []io.Closer
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*ocr.Engine, []io.Closer, error) {
	dict := ocr.DefaultDictionary()
	if cfg.DictionaryPath != "" {
		loaded, err := ocr.LoadDictionary(cfg.DictionaryPath)
		if err != nil {
			logger.Warn("Using embedded dictionary", "path", cfg.DictionaryPath, "error", err)
		} else {
			dict = loaded
		}
	}

	tesseract := ocr.NewTesseractOCR(&ocr.TesseractConfig{
		TessdataPrefix: cfg.TessdataPrefix,
		Language:       cfg.OCRLanguage,
	})

	var (
		recognizer ocr.TextRecognizer = tesseract
		closers    []io.Closer
	)
	if cfg.OCRBackend == "vision" {
		vision, err := ocr.NewVisionOCR(ctx, cfg.GoogleCredentialsJSON, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Vision OCR: %w", err)
		}
		recognizer = vision
		closers = append(closers, vision)
	}

	engine, err := ocr.NewEngine(&ocr.EngineConfig{
		Analyzer:          tesseract,
		Recognizer:        recognizer,
		Scorer:            ocr.NewQualityScorer(dict, cfg.QualitySampleSize),
		RotationThreshold: cfg.RotationThreshold,
		PosterizeBits:     cfg.PosterizeBits,
		RetrySparseText:   cfg.RetrySparseText,
		Logger:            logging.NewLogger("ocr"),
	})
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	return engine, closers, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage.StorageManager, error) {
	return storage.NewStorageManager(ctx, storage.ManagerConfig{
		Backends:        cfg.StoreBackends,
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
		PostgresURL:     cfg.DatabaseURL,
		PostgresTable:   cfg.PostgresTable,
		RedisURL:        cfg.RedisURL,
		RedisKeyPrefix:  cfg.RedisKeyPrefix,
	}, logging.NewLogger("storage"))
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	logger := logging.NewLogger("pipeline")

	engine, closers, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := processor.DefaultRegistry(
		processor.NewPDFExtractor(engine, processor.OpenPDF, logging.NewLogger("pdf")),
		processor.NewImageExtractor(engine, logging.NewLogger("image")),
	)

	sm, err := openStorage(ctx, cfg)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Registry:          registry,
		Writers:           sm.Writers(),
		Concurrency:       cfg.WorkerConcurrency,
		ProcessingTimeout: cfg.Timeout(),
		Logger:            logging.NewLogger("dispatch"),
	})
	if err != nil {
		sm.Close()
		closeAll(closers)
		return nil, err
	}

	return &pipeline{storage: sm, dispatcher: dispatcher, closers: closers}, nil
}

func (p *pipeline) Close() error {
	return errors.Join(p.storage.Close(), closeAll(p.closers))
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
