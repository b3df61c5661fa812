package router

import (
	"fmt"
	"io"
	"net/http"
)

func ExampleRouter_GetIndex() {
	server, _ := setupTestRouter(nil)
	defer server.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(server.URL + "/")
		if err != nil {
			panic(err)
		}

		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			panic(err)
		}

		fmt.Println(resp.StatusCode, string(b))
	}

	// Output:
	// 200 Request number: 1
	// 200 Request number: 2
}

func ExampleRouter_GetUserByID() {
	server, _ := setupTestRouter(nil, withUsers(makeUsers(7)...))
	defer server.Close()

	for _, id := range []string{"7", "abc", "999999"} {
		resp, err := http.Get(server.URL + "/users/" + id)
		if err != nil {
			panic(err)
		}

		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			panic(err)
		}

		fmt.Println(resp.StatusCode, string(b))
	}

	// Output:
	// 200 {"id":7,"name":"user 7","email":"user7@example.com"}
	// 400 {"error":"invalid user id: \"abc\""}
	// 404 {"error":"user not found: 999999"}
}
