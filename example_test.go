package sagaflow_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/domain"
)

func ExampleEngine_Run() {
	saga, err := domain.NewBuilder("checkout").
		WithID("checkout-1").
		AddStep(domain.Step{ID: "reserve", Domain: "inventory", CommandType: "Reserve", RetryPolicy: domain.NoRetry()}).
		AddStep(domain.Step{ID: "charge", Domain: "payments", CommandType: "Charge", DependsOn: []string{"reserve"}, RetryPolicy: domain.NoRetry()}).
		Compensation("reserve", "inventory", "Release", nil).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	bus := memory.NewBus().FailStep("charge", errors.New("card declined"))
	eng := sagaflow.New(sagaflow.WithCommandBus(bus))

	result, err := eng.Run(context.Background(), saga)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(result.State.Status)
	fmt.Println(bus.SentSteps(domain.CommandExecuteCompensation))
	// Output:
	// compensated
	// [reserve]
}
