package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestFileProcessor_ScanForFiles tests the ScanForFiles method of FileProcessor.
func TestFileProcessor_ScanForFiles(t *testing.T) {
	tempDir := t.TempDir()
	for _, name := range []string{
		"conversiones-20250426-090000.xls",
		"habilitaciones-20250425-120000.xls",
		"conversiones-20250425-085057.xls",
		"conversiones-20250425-070000.xlsx",
		"notes.txt",
		".hidden-20250425-085057.xls",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "archivo"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "archivo", "conversiones-20250424-080000.xls"), []byte("x"), 0644))

	fileProcessor := NewFileProcessor(new(MockDBManager), nil, nil)

	t.Run("Success", func(t *testing.T) {
		fileInfos, skipped, err := fileProcessor.ScanForFiles(context.Background(), tempDir)
		require.NoError(t, err)

		var names []string
		for _, info := range fileInfos {
			names = append(names, info.Name)
		}
		// Files in subdirectories are archives and are not picked up.
		assert.Equal(t, []string{
			"conversiones-20250425-070000.xlsx",
			"conversiones-20250425-085057.xls",
			"habilitaciones-20250425-120000.xls",
			"conversiones-20250426-090000.xls",
		}, names)

		require.Len(t, skipped, 1)
		assert.Equal(t, "notes.txt", skipped[0].File)
		assert.Equal(t, "MalformedFilename", skipped[0].Reason)
	})

	t.Run("DirectoryNotFound", func(t *testing.T) {
		_, _, err := fileProcessor.ScanForFiles(context.Background(), filepath.Join(tempDir, "missing"))
		assert.Error(t, err)
	})
}

func TestFileProcessor_GroupByPractice(t *testing.T) {
	fileProcessor := NewFileProcessor(new(MockDBManager), nil, nil)
	files := []models.FileInfo{
		{Name: "a1", Parsed: models.ParsedFilename{PracticeKey: "conversiones"}},
		{Name: "b1", Parsed: models.ParsedFilename{PracticeKey: "habilitaciones"}},
		{Name: "a2", Parsed: models.ParsedFilename{PracticeKey: "conversiones"}},
	}

	jobs := fileProcessor.GroupByPractice(files)

	require.Len(t, jobs, 2)
	assert.Equal(t, "conversiones", jobs[0].PracticeKey)
	assert.Equal(t, "a1", jobs[0].Files[0].Name)
	assert.Equal(t, "a2", jobs[0].Files[1].Name)
	assert.Equal(t, "habilitaciones", jobs[1].PracticeKey)
	assert.Empty(t, fileProcessor.GroupByPractice(nil))
}

// TestFileProcessor_UpdateFileStatus tests the UpdateFileStatus method of FileProcessor.
func TestFileProcessor_UpdateFileStatus(t *testing.T) {
	fileMap := models.FileMap{
		1: {FileID: 1, Name: "ok.xls"},
		2: {FileID: 2, Name: "partial.xls"},
		3: {FileID: 3, Name: "broken.xls"},
	}

	t.Run("StatusPerOutcome", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager, nil, nil)

		fem := models.NewFileErrorMap()
		fem.Errors[2] = []models.AppError{{FileID: 2, Column: "Atlantida", Err: models.ErrUnknownRegion}}
		fem.Errors[3] = []models.AppError{{FileID: 3, Err: models.ErrUnparseableTable}}
		fem.Failed[3] = true

		dbManager.On("UpdateFileStatus", mock.Anything, 1, database.FileStatusDone, nil).Return(nil).Once()
		dbManager.On("UpdateFileStatus", mock.Anything, 2, database.FileStatusDoneWithErrors, fem.Errors[2]).Return(nil).Once()
		dbManager.On("UpdateFileStatus", mock.Anything, 3, database.FileStatusFatal, fem.Errors[3]).Return(nil).Once()

		err := fileProcessor.UpdateFileStatus(context.Background(), fem, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("StoreErrorDoesNotStopOtherFiles", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager, nil, nil)

		dbManager.On("UpdateFileStatus", mock.Anything, mock.Anything, database.FileStatusDone, nil).
			Return(errors.New("db error")).Times(3)

		err := fileProcessor.UpdateFileStatus(context.Background(), models.NewFileErrorMap(), &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("MemoryStoreRoundTrip", func(t *testing.T) {
		db := database.NewMemoryDBManager()
		id, err := db.InsertFileRecord(context.Background(), "ok.xls", time.Now(), database.FileStatusProcessing, "abc", time.Now())
		require.NoError(t, err)

		fileProcessor := NewFileProcessor(db, nil, nil)
		require.NoError(t, fileProcessor.UpdateFileStatus(context.Background(), models.NewFileErrorMap(), &models.FileMap{id: {FileID: id, Name: "ok.xls"}}))

		status, ok := db.FileStatus("ok.xls")
		require.True(t, ok)
		assert.Equal(t, database.FileStatusDone, status)
	})
}
