package runner

import (
	"fmt"
	"sort"
	"strings"
)

// MockFunc is a stand-in implementation invoked in place of real code
// under test.
type MockFunc func(input any) any

// mocks is the registry of hardcoded stand-in functions the runner can
// recognize in generated test code.
var mocks = map[string]MockFunc{
	"CreateUser": func(input any) any {
		return map[string]any{"id": 1, "created": true, "user": input}
	},
	"Login": func(input any) any {
		return map[string]any{"token": "mock-token-123", "authenticated": true}
	},
	"calculateSum": func(input any) any {
		if nums, ok := numbers(input); ok {
			var sum float64
			for _, n := range nums {
				sum += n
			}
			return sum
		}
		return 0
	},
	"calculateAverage": func(input any) any {
		if nums, ok := numbers(input); ok && len(nums) > 0 {
			var sum float64
			for _, n := range nums {
				sum += n
			}
			return sum / float64(len(nums))
		}
		return 0
	},
	"validateEmail": func(input any) any {
		s, _ := input.(string)
		return strings.Count(s, "@") == 1 && strings.Contains(s, ".")
	},
	"getUserById": func(input any) any {
		return map[string]any{"id": input, "name": "Test User", "email": "test@example.com"}
	},
	"updateUser": func(input any) any {
		return map[string]any{"updated": true, "user": input}
	},
	"deleteUser": func(input any) any {
		return map[string]any{"deleted": true, "id": input}
	},
	"fetchData": func(input any) any {
		return map[string]any{"status": 200, "data": []any{}}
	},
	"processPayment": func(input any) any {
		return map[string]any{"success": true, "transactionId": "txn_mock_001"}
	},
	"reverseString": func(input any) any {
		s, _ := input.(string)
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	},
	"sortArray": func(input any) any {
		if nums, ok := numbers(input); ok {
			sorted := append([]float64(nil), nums...)
			sort.Float64s(sorted)
			return sorted
		}
		return input
	},
}

// MockNames returns the registered mock function names, sorted.
func MockNames() []string {
	names := make([]string, 0, len(mocks))
	for name := range mocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// numbers coerces a test input into a slice of float64. Inputs arrive as
// arbitrary JSON values, so arrays of numbers and numeric strings are both
// handled.
func numbers(input any) ([]float64, bool) {
	switch v := input.(type) {
	case []any:
		nums := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				nums = append(nums, n)
			case int:
				nums = append(nums, float64(n))
			case string:
				var f float64
				if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
					return nil, false
				}
				nums = append(nums, f)
			default:
				return nil, false
			}
		}
		return nums, true
	case []float64:
		return v, true
	}
	return nil, false
}
