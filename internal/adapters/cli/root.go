package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

// Services are the use cases the commands drive.
type Services struct {
	Indexer  ports.DocumentIndexer
	Answerer ports.QuestionAnswerer
	Admin    ports.IndexAdmin
}

// OpenFunc builds Services on first use; the returned func releases them.
type OpenFunc func(ctx context.Context) (*Services, func(), error)

type runner struct {
	open     OpenFunc
	services *Services
	closeFn  func()
	jsonOut  bool
}

// NewRootCommand returns the ragctl command tree. Services are opened
// lazily so --help and argument errors never touch the backends.
func NewRootCommand(open OpenFunc) *cobra.Command {
	r := &runner{open: open}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Index documents and ask questions against them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if r.closeFn != nil {
				r.closeFn()
				r.closeFn = nil
			}
		},
	}
	root.PersistentFlags().BoolVar(&r.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newIndexCommand(r),
		newAskCommand(r),
		newClearCommand(r),
		newRecordsCommand(r),
	)
	return root
}

func (r *runner) ensure(ctx context.Context) (*Services, error) {
	if r.services != nil {
		return r.services, nil
	}
	if r.open == nil {
		return nil, errors.New("services not configured")
	}
	services, closeFn, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open services: %w", err)
	}
	r.services = services
	r.closeFn = closeFn
	return services, nil
}

func (r *runner) printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
