package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/attendface/pkg/matching"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <user_id> <image>",
	Short: "Enroll the face in an image for a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runEnroll,
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Find the enrolled user closest to the face in an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <user_id> <image>",
	Short: "Check whether the face in an image belongs to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runVerify,
}

var removeCmd = &cobra.Command{
	Use:   "remove <user_id>",
	Short: "Remove a user's face data",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled users",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(enrollCmd, recognizeCmd, verifyCmd, removeCmd, listCmd)
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user_id must be a positive integer, got %q", s)
	}
	return id, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.engine.Enroll(cmd.Context(), id, data)
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled user %d (face id %s)\n", e.IdentityKey, e.FaceID)
	if e.ReferenceImage != "" {
		fmt.Printf("Audit crop: %s\n", e.ReferenceImage)
	}
	return nil
}

func runRecognize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	result, err := a.engine.Recognize(ctx, data)
	if err != nil {
		return err
	}
	printMatch(ctx, a, result)
	return nil
}

func printMatch(ctx context.Context, a *app, result *matching.MatchResult) {
	if result.Candidates == 0 {
		fmt.Println("No match: no faces are enrolled.")
		return
	}
	if !result.Matched {
		fmt.Printf("No match (nearest user %d at distance %.4f, tolerance %.2f)\n",
			result.IdentityKey, result.Distance, a.engine.Tolerance())
		return
	}

	fmt.Printf("Matched user %d", result.IdentityKey)
	if name := a.displayName(ctx, result.IdentityKey); name != "" {
		fmt.Printf(" (%s)", name)
	}
	fmt.Printf(" at distance %.4f\n", result.Distance)
}

func runVerify(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Verify(cmd.Context(), id, data)
	if err != nil {
		return err
	}
	verdict := "NOT verified"
	if result.Verified {
		verdict = "verified"
	}
	fmt.Printf("User %d %s (distance %.4f, tolerance %.2f)\n", id, verdict, result.Distance, a.engine.Tolerance())
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.engine.Delete(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %d is not enrolled", id)
	}
	fmt.Printf("Face data for user %d has been removed.\n", id)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	all, err := a.engine.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	fmt.Println("Enrolled users:")
	for _, e := range all {
		line := fmt.Sprintf("  - %d  %s  %s", e.IdentityKey, e.FaceID, e.CreatedAt.Format("2006-01-02 15:04"))
		if name := a.displayName(ctx, e.IdentityKey); name != "" {
			line += "  " + name
		}
		fmt.Println(line)
	}
	fmt.Printf("\nTotal: %d user(s)\n", len(all))
	return nil
}
