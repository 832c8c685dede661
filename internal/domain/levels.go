package domain

type Level struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	MinXP int    `json:"minXp"`
}

// Levels is ordered by ascending MinXP.
var Levels = []Level{
	{Level: 1, Title: "Scavenger", MinXP: 0},
	{Level: 2, Title: "Tinkerer", MinXP: 100},
	{Level: 3, Title: "Maker", MinXP: 300},
	{Level: 4, Title: "Upcycler", MinXP: 600},
	{Level: 5, Title: "Eco-Artisan", MinXP: 1000},
	{Level: 6, Title: "Planet Saver", MinXP: 1500},
	{Level: 7, Title: "Trash-to-Treasure Master", MinXP: 2200},
}
