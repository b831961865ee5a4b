package repository

import "github.com/snaptrack/internal/domain"

// TrackRepository определяет методы чтения и записи треков
type TrackRepository interface {
	// Load читает и валидирует входной трек
	Load(path string) (*domain.Track, error)

	// Write сериализует исправленный трек в файл
	Write(track *domain.CorrectedTrack, path string) error

	// OutputPath строит путь выходного файла рядом со входным
	// (или в outputDir, если он задан)
	OutputPath(inputPath, outputDir string) string
}
