package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/tui"
)

// workflowsCreateFlags holds command-specific flags for workflows create.
type workflowsCreateFlags struct {
	file string
}

// workflowFile is the YAML schema for workflow definitions. It mirrors the
// API payload but allows step numbers to be omitted (positions are used)
// and variables to be written as plain strings.
type workflowFile struct {
	Name        string                          `yaml:"name"`
	Description string                          `yaml:"description"`
	Trigger     string                          `yaml:"trigger"`
	Schedule    string                          `yaml:"schedule"`
	Status      string                          `yaml:"status"`
	Variables   map[string]workflowFileVariable `yaml:"variables"`
	Steps       []workflowFileStep              `yaml:"steps"`
}

// workflowFileStep is one step entry in a workflow YAML file.
type workflowFileStep struct {
	StepNumber  int    `yaml:"step_number"`
	Action      string `yaml:"action"`
	Target      string `yaml:"target"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
	Condition   string `yaml:"condition"`
}

// workflowFileVariable is one variable entry. It accepts either a plain
// scalar ("query: widgets") or a mapping with value and secret keys.
type workflowFileVariable struct {
	Value  string `yaml:"value"`
	Secret bool   `yaml:"secret"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (v *workflowFileVariable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Value = node.Value
		v.Secret = false
		return nil
	}
	type plain workflowFileVariable
	return node.Decode((*plain)(v))
}

// newWorkflowsCreateCmd creates the workflows create command.
func newWorkflowsCreateCmd() *cobra.Command {
	flags := &workflowsCreateFlags{}

	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"new", "add"},
		Short:   "Create a workflow from a YAML file",
		Long: `Create a workflow from a YAML definition file. Use "-" to read the
definition from stdin.

The file names the workflow and lists its steps in order:

  name: Daily price check
  description: Extract widget prices every morning
  trigger: scheduled
  schedule: "0 9 * * *"
  variables:
    query: widgets
  steps:
    - action: navigate
      target: https://shop.example.com
    - action: type
      target: search bar
      value: "{{query}}"
    - action: extract
      target: product names and prices

Step numbers default to file order. Trigger defaults to manual, status
to active.

Examples:
  # Create from a file
  webrun workflows create -f checkout.yaml

  # Pipe a generated definition
  cat checkout.yaml | webrun workflows create -f -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflowsCreate(cmd.Context(), cmd, os.Stdout, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "workflow definition YAML file (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// runWorkflowsCreate executes the workflows create command logic.
func runWorkflowsCreate(ctx context.Context, cmd *cobra.Command, w io.Writer, flags *workflowsCreateFlags) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	payload, err := loadWorkflowFile(flags.file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	client := clientFromCmd(cmd)
	created, err := client.CreateWorkflow(ctx, payload)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(created)
	}

	out.Success(fmt.Sprintf("Created workflow %q (%s)", created.Name, created.ID))
	out.Info(fmt.Sprintf("  %d step(s), trigger %s%s", len(created.Steps), created.TriggerType, cronSuffix(created.ScheduleCron)))
	if created.TriggerType == constants.TriggerWebhook {
		out.Info(fmt.Sprintf("  webhook: POST /api/workflows/webhook/%s", created.ID))
	}
	return nil
}

// loadWorkflowFile reads and converts a YAML definition into the create
// payload. Validation beyond YAML shape is the server's job.
func loadWorkflowFile(path string, stdin io.Reader) (*workflowPayload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // user-supplied CLI path
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}
	if len(file.Steps) == 0 {
		return nil, fmt.Errorf("workflow file has no steps")
	}

	steps := make([]domain.StepDefinition, 0, len(file.Steps))
	for i, s := range file.Steps {
		number := s.StepNumber
		if number == 0 {
			number = i + 1
		}
		steps = append(steps, domain.StepDefinition{
			StepNumber:  number,
			Action:      constants.Action(s.Action),
			Target:      s.Target,
			Value:       s.Value,
			Description: s.Description,
			Condition:   s.Condition,
		})
	}

	var variables map[string]domain.Variable
	if len(file.Variables) > 0 {
		variables = make(map[string]domain.Variable, len(file.Variables))
		for name, v := range file.Variables {
			variables[name] = domain.Variable{Value: v.Value, Secret: v.Secret}
		}
	}

	return &workflowPayload{
		Name:         file.Name,
		Description:  file.Description,
		Steps:        steps,
		Variables:    variables,
		TriggerType:  constants.Trigger(file.Trigger),
		ScheduleCron: file.Schedule,
		Status:       constants.WorkflowStatus(file.Status),
	}, nil
}
