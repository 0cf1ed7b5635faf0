package autosplit

// jsConditionConfig holds what the goja engine needs to compile route
// conditions.
type jsConditionConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the JS condition engine.
type JSEvaluatorOption func(*jsConditionConfig)

// JSWithProgramCache shares compiled conditions through cache.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsConditionConfig) { cfg.cache = cache }
}

// JSWithFunctionRegistry exposes a copy of registry as global functions to
// every condition.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsConditionConfig) {
		if registry != nil {
			cfg.registry = registry.Clone()
		}
	}
}

func jsConditionOptions(opts []JSEvaluatorOption) jsConditionConfig {
	var cfg jsConditionConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
