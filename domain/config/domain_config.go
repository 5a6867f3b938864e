package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Tree constraints
	MaxTreeDepth      int
	MaxNodesPerTree   int
	MaxOptionsPerNode int

	// Content constraints
	MaxTitleLength      int
	MaxContentLength    int
	MaxOptionTextLength int
	MaxTopicLength      int
	MaxJobErrorLength   int
	AllowDanglingLeaves bool

	// Orchestration limits
	DefaultStepBudget int
	JobTimeout        time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxTreeDepth:      12,
		MaxNodesPerTree:   99,
		MaxOptionsPerNode: 6,

		MaxTitleLength:      200,
		MaxContentLength:    5000,
		MaxOptionTextLength: 200,
		MaxTopicLength:      500,
		MaxJobErrorLength:   1000,
		AllowDanglingLeaves: true,

		DefaultStepBudget: 50,
		JobTimeout:        5 * time.Minute,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Trees must fit into one DynamoDB transaction (100 items incl. the tree row).
	config.MaxNodesPerTree = 99
	config.MaxContentLength = 3000

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxTreeDepth = 32
	config.MaxNodesPerTree = 500
	config.JobTimeout = 15 * time.Minute

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxTreeDepth < 1 {
		return fmt.Errorf("max tree depth must be positive, got %d", c.MaxTreeDepth)
	}
	if c.MaxNodesPerTree < 1 {
		return fmt.Errorf("max nodes per tree must be positive, got %d", c.MaxNodesPerTree)
	}
	if c.DefaultStepBudget < 1 {
		return fmt.Errorf("step budget must be positive, got %d", c.DefaultStepBudget)
	}
	return nil
}
