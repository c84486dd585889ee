package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/call"
	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/httpclient"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/registry"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
)

type fakeClient struct {
	response httpclient.Response
	err      error
	lastReq  httpclient.Request
	baseURL  string
}

func (f *fakeClient) Execute(ctx context.Context, req httpclient.Request) (httpclient.Response, error) {
	f.lastReq = req
	return f.response, f.err
}
func (f *fakeClient) SetBaseURL(baseURL string)               { f.baseURL = baseURL }
func (f *fakeClient) BaseURL() string                         { return f.baseURL }
func (f *fakeClient) SetDefaultTimeout(timeout time.Duration) {}

func newDispatcher(client httpclient.Client, svc *call.Service) *Dispatcher {
	if svc == nil {
		svc = &call.Service{}
	}
	return New(client, svc, nil)
}

func TestDispatchSelectsRequestStrategyByDefault(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200, Body: map[string]interface{}{"ok": true}}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{Name: "Check", Request: &config.RequestSpec{Method: "GET", URL: "/health"}, Assertions: map[string]interface{}{"status_code": 200}}

	vars := variables.New(registry.New())
	result, err := d.Dispatch(context.Background(), suite, step, vars, "https://api.example.com", 0)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusSuccess, result.Status)
	require.Equal(t, 200, result.StatusCode)
}

func TestDispatchRequestFailsOnAssertionMismatch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 500}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{Name: "Check", Request: &config.RequestSpec{Method: "GET", URL: "/health"}, Assertions: map[string]interface{}{"status_code": 200}}

	vars := variables.New(registry.New())
	result, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusFailure, result.Status)
}

func TestDispatchCapturesIntoRuntime(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200, Body: map[string]interface{}{"id": "abc"}}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{
		Name:    "Create",
		Request: &config.RequestSpec{Method: "POST", URL: "/things"},
		Capture: map[string]string{"thing_id": "body.id"},
	}

	vars := variables.New(registry.New())
	_, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.Equal(t, "abc", vars.Runtime["thing_id"])
}

func TestDispatchIterateExpandsOverRange(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{
		Name:    "Loop",
		Iterate: &config.IterateSpec{Range: "1..3", As: "n"},
		Request: &config.RequestSpec{Method: "GET", URL: "/items/{{n}}"},
	}

	vars := variables.New(registry.New())
	result, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.NotNil(t, result.Iteration)
	require.Len(t, result.Iteration.Children, 3)
	require.True(t, result.Iteration.Success)
}

func TestDispatchIterateOverArrayVariable(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{
		Name:    "Loop",
		Iterate: &config.IterateSpec{Over: "{{items}}", As: "item"},
		Request: &config.RequestSpec{Method: "GET", URL: "/items/{{item}}"},
	}

	vars := variables.New(registry.New())
	vars.Runtime["items"] = []interface{}{"a", "b"}
	result, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.Len(t, result.Iteration.Children, 2)
}

func TestDispatchScenarioSelectsFirstMatchingBranch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 404}}
	d := newDispatcher(client, nil)

	suite := &config.Suite{NodeID: "s1"}
	step := config.Step{
		Name: "Lookup",
		Scenarios: &config.ScenarioSpec{
			Request: &config.RequestSpec{Method: "GET", URL: "/things/1"},
			Branches: []config.ScenarioBranch{
				{Name: "not_found", Condition: "status_code == `404`", Then: &config.Then{Set: map[string]interface{}{"found": false}}},
			},
		},
	}

	vars := variables.New(registry.New())
	result, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.NotNil(t, result.ScenarioMeta)
	require.Equal(t, "not_found", result.ScenarioMeta.SelectedBranch)
	require.Equal(t, false, vars.Runtime["found"])
}

func TestDispatchCallInvokesCallService(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200, Body: map[string]interface{}{"token": "xyz"}}}
	svc := &call.Service{
		Loader: func(path string) (*config.Suite, error) {
			return &config.Suite{
				NodeID: "target",
				Steps: []config.Step{{
					StepID:  "step1",
					Name:    "Step1",
					Request: &config.RequestSpec{Method: "GET", URL: "/x"},
					Capture: map[string]string{"token": "body.token"},
				}},
			}, nil
		},
	}
	d := newDispatcher(client, svc)

	suite := &config.Suite{NodeID: "caller"}
	step := config.Step{Name: "Invoke", Call: &config.CallSpec{Test: "target.yaml", Step: "step1"}}

	vars := variables.New(registry.New())
	result, err := d.Dispatch(context.Background(), suite, step, vars, "", 0)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusSuccess, result.Status)
	require.NotNil(t, result.CallResult)
	require.Equal(t, "xyz", result.CallResult.PropagatedVariables["target.token"])
}

func TestHooksRunnerCallerDelegatesThroughDispatcher(t *testing.T) {
	t.Parallel()

	client := &fakeClient{response: httpclient.Response{StatusCode: 200, Body: map[string]interface{}{"token": "xyz"}}}
	svc := &call.Service{
		Loader: func(path string) (*config.Suite, error) {
			return &config.Suite{
				NodeID: "target",
				Steps: []config.Step{{
					StepID:  "step1",
					Name:    "Step1",
					Request: &config.RequestSpec{Method: "GET", URL: "/x"},
					Capture: map[string]string{"token": "body.token"},
				}},
			}, nil
		},
	}
	d := newDispatcher(client, svc)

	vars := variables.New(registry.New())
	results := d.Hooks.Run(context.Background(), []config.Hook{
		{Call: &config.CallSpec{Test: "target.yaml", Step: "step1"}},
	}, vars, variables.ScriptContext{}, "step")

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
}
