package gemini

import "fmt"

const promptTemplate = `
You are an expert software testing engineer. Analyze the provided code and generate comprehensive test cases.

Code Context:
%s

%s

Please generate test cases in the following JSON format:
{
  "testCases": [
    {
      "id": "unique_id",
      "name": "descriptive_test_name",
      "description": "detailed_description_of_what_this_test_does",
      "input": "input_data_for_the_test",
      "expected": "expected_output_or_result",
      "code": "the_function_or_code_being_tested",
      "testType": "unit|integration|edge-case|error-handling",
      "priority": "high|medium|low"
    }
  ],
  "summary": {
    "totalTests": "number",
    "unitTests": "number",
    "integrationTests": "number",
    "edgeCases": "number",
    "errorHandlingTests": "number"
  }
}

Guidelines:
1. Generate comprehensive test cases covering normal cases, edge cases, and error scenarios
2. Include both positive and negative test cases
3. Test boundary conditions and edge cases
4. Include error handling tests
5. Make test names descriptive and clear
6. Ensure test inputs are realistic and meaningful
7. Focus on the main functionality of the code
8. Generate at least 5-10 test cases for good coverage

Return only valid JSON, no additional text or markdown formatting.`

// BuildPrompt renders the test generation prompt for the given code context
// and optional additional instructions.
func BuildPrompt(codeContext, additionalPrompt string) string {
	return fmt.Sprintf(promptTemplate, codeContext, additionalPrompt)
}
