package main

import (
	"context"
	"fmt"

	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the booking schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeFn, err := g.open(ctx, g.databaseURL)
			if err != nil {
				return err
			}
			defer closeFn()
			m, ok := store.(interface{ Migrate(context.Context) error })
			if !ok {
				return fmt.Errorf("store does not support migrations")
			}
			if err := m.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func newSlotsCmd(g *globals) *cobra.Command {
	var (
		providerID string
		employeeID string
		serviceID  string
		duration   int
		date       string
	)
	c := &cobra.Command{
		Use:   "slots",
		Short: "List bookable start times for a provider or employee on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serviceID == "" && duration <= 0 {
				return fmt.Errorf("one of --service or --duration is required")
			}
			engine, closeFn, err := g.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			scope := model.OwnerScope{ProviderID: providerID, EmployeeID: employeeID}
			var slots []string
			if serviceID != "" {
				slots, err = engine.GenerateSlotsForService(cmd.Context(), scope, date, serviceID)
			} else {
				slots, err = engine.GenerateSlots(cmd.Context(), scope, date, duration)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"provider_id": providerID,
				"employee_id": employeeID,
				"date":        date,
				"slots":       slots,
			})
		},
	}
	c.Flags().StringVar(&providerID, "provider", "", "provider id")
	c.Flags().StringVar(&employeeID, "employee", "", "employee id (optional)")
	c.Flags().StringVar(&serviceID, "service", "", "service id; sizes slots by its duration")
	c.Flags().IntVar(&duration, "duration", 0, "duration in minutes when no --service is given")
	c.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	_ = c.MarkFlagRequired("provider")
	_ = c.MarkFlagRequired("date")
	return c
}

func newValidateCmd(g *globals) *cobra.Command {
	var req scheduling.ValidateRequest
	c := &cobra.Command{
		Use:   "validate",
		Short: "Check whether one start time can be booked; exits non-zero when it cannot",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := g.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res := engine.ValidateSlot(cmd.Context(), req)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("slot rejected: %s", res.Reason)
			}
			return nil
		},
	}
	c.Flags().StringVar(&req.ProviderID, "provider", "", "provider id")
	c.Flags().StringVar(&req.ServiceID, "service", "", "service id")
	c.Flags().StringVar(&req.EmployeeID, "employee", "", "employee id (optional)")
	c.Flags().StringVar(&req.Date, "date", "", "date as YYYY-MM-DD")
	c.Flags().StringVar(&req.Time, "time", "", "start time as HH:MM")
	c.Flags().StringVar(&req.IgnoreAppointmentID, "ignore", "", "appointment id to ignore, as when rescheduling it")
	for _, name := range []string{"provider", "service", "date", "time"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}
