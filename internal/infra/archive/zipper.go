package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
)

// ErrEmptySelection is returned when the selection matches no keyframes.
// An empty archive is never produced.
var ErrEmptySelection = errors.New("no keyframes selected for archive")

type ZipBuilder struct{}

func NewZipBuilder() *ZipBuilder {
	return &ZipBuilder{}
}

// CreateArchive zips the keyframes whose filenames appear in selection,
// entry names taken from each keyframe's Filename. Selection order does
// not matter; entries follow the keyframe (timestamp) order.
func (z *ZipBuilder) CreateArchive(ctx context.Context, items []entity.Keyframe, selection []string, outputPath string) error {
	wanted := make(map[string]struct{}, len(selection))
	for _, name := range selection {
		wanted[name] = struct{}{}
	}

	var picked []entity.Keyframe
	for _, item := range items {
		if _, ok := wanted[item.Filename]; ok {
			picked = append(picked, item)
		}
	}
	if len(picked) == 0 {
		return ErrEmptySelection
	}

	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, item := range picked {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zipWriter, item.ImagePath, item.Filename); err != nil {
			return fmt.Errorf("add %s to zip: %w", item.Filename, err)
		}
	}

	return nil
}

func addFileToZip(zw *zip.Writer, path, entryName string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = entryName
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
