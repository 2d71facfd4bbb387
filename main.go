package main

import (
	"flag"
	"log"

	"incidents-reseau/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "", "chemin du fichier de configuration YAML (facultatif)")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		log.Fatalf("démarrage impossible: %v", err)
	}
}
