package catalog

import "fmt"

// Flag identifies a feature gated by the rollout engine. The set of flags is
// closed: every flag the application can ask about is declared here, so call
// sites branching on flag identity can be checked exhaustively.
type Flag int

const (
	NewJWTAuthentication Flag = iota
	NewUserDomainModel
	NewPasswordService
	NewStudyBookRepository
	NewStudyBookValidation
	NewTypingAccuracyCalculation
	NewTypingStatistics
	OptimizedQueries
	QueryCaching
	NewErrorHandling
	EnhancedInputSanitization
	RateLimiting
	AsyncProcessing

	flagCount // sentinel, keep last
)

type spec struct {
	key          string
	description  string
	defaultValue bool
}

var specs = [flagCount]spec{
	NewJWTAuthentication:         {"new-jwt-authentication", "Use new JWT authentication system", false},
	NewUserDomainModel:           {"new-user-domain-model", "Use new User domain model", false},
	NewPasswordService:           {"new-password-service", "Use new password service with enhanced security", false},
	NewStudyBookRepository:       {"new-studybook-repository", "Use new StudyBook repository implementation", false},
	NewStudyBookValidation:       {"new-studybook-validation", "Use new StudyBook validation rules", false},
	NewTypingAccuracyCalculation: {"new-typing-accuracy-calculation", "Use new accuracy calculation algorithm", false},
	NewTypingStatistics:          {"new-typing-statistics", "Use new typing statistics service", false},
	OptimizedQueries:             {"optimized-queries", "Use optimized database queries", false},
	QueryCaching:                 {"query-caching", "Enable query result caching", false},
	NewErrorHandling:             {"new-error-handling", "Use new global error handling", false},
	EnhancedInputSanitization:    {"enhanced-input-sanitization", "Use enhanced input sanitization", false},
	RateLimiting:                 {"rate-limiting", "Enable API rate limiting", false},
	AsyncProcessing:              {"async-processing", "Enable asynchronous processing", false},
}

var byKey = func() map[string]Flag {
	m := make(map[string]Flag, flagCount)
	for f := Flag(0); f < flagCount; f++ {
		m[specs[f].key] = f
	}
	return m
}()

// Key returns the stable string identifier persisted in the store.
func (f Flag) Key() string {
	return specs[f].key
}

// Description returns the human-readable summary of what the flag gates.
func (f Flag) Description() string {
	return specs[f].description
}

// DefaultValue is the decision used when no persisted record exists yet.
func (f Flag) DefaultValue() bool {
	return specs[f].defaultValue
}

func (f Flag) String() string {
	if f < 0 || f >= flagCount {
		return fmt.Sprintf("Flag(%d)", int(f))
	}
	return specs[f].key
}

// All returns every declared flag in declaration order.
func All() []Flag {
	flags := make([]Flag, flagCount)
	for f := Flag(0); f < flagCount; f++ {
		flags[f] = f
	}
	return flags
}

// FromKey resolves a persisted key back to its catalog entry.
func FromKey(key string) (Flag, error) {
	f, ok := byKey[key]
	if !ok {
		return 0, fmt.Errorf("unknown feature flag key: %s", key)
	}
	return f, nil
}
