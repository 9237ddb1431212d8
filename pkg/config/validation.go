package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and the rules tags cannot
// express. Errors name the offending field by its config path.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value: %v)", fe.Namespace(), fieldRule(fe), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.MDS.Lease.HardLimit < cfg.MDS.Lease.SoftLimit {
		return fmt.Errorf("mds.lease.hard_limit (%s) must not be shorter than mds.lease.soft_limit (%s)",
			cfg.MDS.Lease.HardLimit, cfg.MDS.Lease.SoftLimit)
	}

	seen := make(map[string]bool, len(cfg.Cluster.StorageNodes))
	for _, n := range cfg.Cluster.StorageNodes {
		if seen[n.ID] {
			return fmt.Errorf("cluster.storage_nodes: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

func fieldRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
