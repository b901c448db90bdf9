package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/roster"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage the student registry",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered students",
	RunE:  runStudentsList,
}

var studentsRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a student",
	Long: `Register adds a student to the registry. Without --id a student ID
is generated. Name matching ignores case, diacritics and separators,
so "Jiří Novák" and "jiri-novak" are the same student.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentsRegister,
}

var studentsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a student and their enrolled encodings",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsRemove,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsListCmd)
	studentsCmd.AddCommand(studentsRegisterCmd)
	studentsCmd.AddCommand(studentsRemoveCmd)

	studentsRegisterCmd.Flags().String("id", "", "Student ID (generated when empty)")
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry, err := roster.Open(cfg.Store.StudentsCSV)
	if err != nil {
		return fmt.Errorf("opening student registry: %w", err)
	}

	students := registry.List()
	if len(students) == 0 {
		fmt.Println("No students registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tREGISTERED")
	for _, s := range students {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.StudentID, s.RegisteredAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runStudentsRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	registry, err := roster.Open(cfg.Store.StudentsCSV)
	if err != nil {
		return fmt.Errorf("opening student registry: %w", err)
	}

	student, err := registry.Register(args[0], mustGetString(cmd, "id"))
	if err != nil {
		if errors.Is(err, roster.ErrDuplicateStudent) {
			return fmt.Errorf("student %q is already registered", args[0])
		}
		return fmt.Errorf("registering student: %w", err)
	}

	fmt.Printf("Registered %s (ID %s)\n", student.Name, student.StudentID)
	return nil
}

func runStudentsRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	registry, err := roster.Open(cfg.Store.StudentsCSV)
	if err != nil {
		return fmt.Errorf("opening student registry: %w", err)
	}

	student, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("student %q not found", args[0])
	}

	if err := registry.Remove(args[0]); err != nil {
		return fmt.Errorf("removing student: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	removed, err := st.DeleteByLabel(ctx, student.Name)
	if err != nil {
		return fmt.Errorf("deleting encodings: %w", err)
	}

	fmt.Printf("Removed %s (%d encodings deleted)\n", student.Name, removed)
	return nil
}
