package config

type Config interface {
	EnvConfig
	ProviderConfig
	GuardConfig
	StorageConfig
}

type mainConfig struct {
	EnvVars
	Provider
	Guard
	Storage
}

func New() Config {
	return mainConfig{}
}
