package config

type StorageConfig interface {
	GetStateFile() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStateFile() string {
	return GetEnv("STATE_FILE", "./data/sessionkit.json")
}
