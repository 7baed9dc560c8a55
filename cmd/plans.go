package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pulsai/pulsai/internal/payment"
)

// PlansCommand prints the subscription catalog, mainly for support staff
// answering pricing questions without the frontend at hand.
func PlansCommand() *cli.Command {
	return &cli.Command{
		Name:  "plans",
		Usage: "List the subscription plans",
		Action: func(c *cli.Context) error {
			for _, plan := range payment.Plans() {
				fmt.Printf("%-12s %6d %s / %s\n", plan.Name, plan.Price, plan.Currency, plan.Period)
				fmt.Printf("             %s\n", strings.Join(plan.Features, ", "))
			}
			return nil
		},
	}
}
