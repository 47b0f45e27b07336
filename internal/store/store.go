package store

import "github.com/yourorg/ramldoc/pkg/types"

type Store interface {
	CreateRun(source, title, outputDir string) (*types.Run, error)
	GetRun(id string) (*types.Run, error)
	UpdateRunStatus(id, status string) error
	ListRuns() ([]types.Run, error)
	DeleteRun(id string) error

	SaveMethod(runID, path string, segments []string, mf *types.MethodFragment) error
	GetResource(runID, path string) (*types.ResourceFragment, error)
	ListResources(runID string) ([]*types.ResourceFragment, error)

	Close() error
}
