package main

import (
	"log"

	"github.com/freekieb7/biu/handler"
	"github.com/freekieb7/biu/http"
)

func main() {
	s, err := http.New(http.WithName("hello"), http.WithAddr("0.0.0.0:8080"))
	if err != nil {
		log.Fatal(err)
	}

	if err := s.Handle(http.MethodGet, "/", handler.Text("", "hello world")); err != nil {
		log.Fatal(err)
	}

	log.Fatal(s.ListenAndServe())
}
