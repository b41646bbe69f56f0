package config

// StoreConfig represents the persistence configuration
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// TrainingConfig represents the model training configuration
type TrainingConfig struct {
	BaselineEpochs int
	AdvancedEpochs int
	BatchSize      int
	LearningRate   float64
	HiddenLayers   []int
	Dropout        float64
	Seed           int64
}

// DriftConfig represents the drift monitoring configuration
type DriftConfig struct {
	Interval  string
	Threshold float64
}

// GetStore returns the persistence configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetTraining returns the training configuration
func (c *Config) GetTraining() TrainingConfig {
	return TrainingConfig{
		BaselineEpochs: c.GetInt("training.baseline_epochs"),
		AdvancedEpochs: c.GetInt("training.advanced_epochs"),
		BatchSize:      c.GetInt("training.batch_size"),
		LearningRate:   c.GetFloat64("training.learning_rate"),
		HiddenLayers:   c.GetIntSlice("training.hidden_layers"),
		Dropout:        c.GetFloat64("training.dropout"),
		Seed:           c.GetInt64("training.seed"),
	}
}

// GetDrift returns the drift monitoring configuration
func (c *Config) GetDrift() DriftConfig {
	return DriftConfig{
		Interval:  c.GetString("drift.interval"),
		Threshold: c.GetFloat64("drift.threshold"),
	}
}
